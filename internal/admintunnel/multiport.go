package admintunnel

import (
	"regexp"
	"strconv"

	"github.com/pkg/errors"
)

// multiPort is a host plus an inclusive port range, parsed from strings
// like "0.0.0.0:30000" or "0.0.0.0:30000-30005". The admin tunnel binds one
// KCP listener per port in the range, exactly as the teacher's data-path
// listener does for AdminListen in place of Listen.
type multiPort struct {
	Host    string
	MinPort uint64
	MaxPort uint64
}

var multiPortPattern = regexp.MustCompile(`(.*):([0-9]{1,5})-?([0-9]{1,5})?`)

func parseMultiPort(addr string) (*multiPort, error) {
	matches := multiPortPattern.FindStringSubmatch(addr)
	if len(matches) < 4 {
		return nil, errors.Errorf("admintunnel: malformed listen address %q", addr)
	}

	minPort, err := strconv.Atoi(matches[2])
	if err != nil {
		return nil, errors.Wrapf(err, "admintunnel: parsing min port in %q", addr)
	}
	maxPort := minPort
	if matches[3] != "" {
		maxPort, err = strconv.Atoi(matches[3])
		if err != nil {
			return nil, errors.Wrapf(err, "admintunnel: parsing max port in %q", addr)
		}
	}

	if minPort > maxPort || minPort > 65535 || maxPort > 65535 || minPort == 0 || maxPort == 0 {
		return nil, errors.Errorf("admintunnel: invalid port range %d-%d in %q", minPort, maxPort, addr)
	}

	return &multiPort{Host: matches[1], MinPort: uint64(minPort), MaxPort: uint64(maxPort)}, nil
}
