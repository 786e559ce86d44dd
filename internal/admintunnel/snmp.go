package admintunnel

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	kcp "github.com/xtaci/kcp-go/v5"

	"github.com/xtaci/kcpcore/internal/logging"
)

var snmpLog = logging.Component("admintunnel.snmp")

// runSNMPLogger periodically appends a row of kcp.DefaultSnmp's counters to
// a CSV file, until ctx-like stop fires. path is run through time.Format so
// operators can roll log files by time (e.g. "snmp-20060102.csv"). A zero
// path or non-positive interval disables the logger entirely.
func runSNMPLogger(stop <-chan struct{}, path string, interval time.Duration) {
	if path == "" || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			writeSNMPRow(path)
		}
	}
}

func writeSNMPRow(path string) {
	dir, file := filepath.Split(path)
	f, err := os.OpenFile(dir+time.Now().Format(file), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		snmpLog.WithError(err).Error("opening snmp log file")
		return
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if stat, err := f.Stat(); err == nil && stat.Size() == 0 {
		if err := w.Write(append([]string{"Unix"}, kcp.DefaultSnmp.Header()...)); err != nil {
			snmpLog.WithError(err).Warn("writing snmp header")
		}
	}
	if err := w.Write(append([]string{fmt.Sprint(time.Now().Unix())}, kcp.DefaultSnmp.ToSlice()...)); err != nil {
		snmpLog.WithError(err).Warn("writing snmp row")
	}
	w.Flush()
}
