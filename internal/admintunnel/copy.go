package admintunnel

import "io"

const copyBufSize = 4096

// streamCopy copies src to dst using the WriterTo/ReaderFrom fast paths
// when available, falling back to a buffered io.Copy. The admin channel
// uses this to write large responses (a full registry dump) onto an smux
// stream without an extra allocation per call.
func streamCopy(dst io.Writer, src io.Reader) (int64, error) {
	if wt, ok := src.(io.WriterTo); ok {
		return wt.WriteTo(dst)
	}
	if rt, ok := dst.(io.ReaderFrom); ok {
		return rt.ReadFrom(src)
	}
	buf := make([]byte, copyBufSize)
	return io.CopyBuffer(dst, src, buf)
}
