package runtime

import "io"

// maxOutputBytes caps stdout/stderr capture to prevent OOM from chatty
// commands. Output beyond the cap is silently discarded.
const maxOutputBytes = 1 << 20 // 1 MB

type limitedWriter struct {
	w         io.Writer
	remaining int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	if lw.remaining <= 0 {
		// Pretend we wrote everything so the process doesn't get EPIPE.
		return len(p), nil
	}
	n := len(p)
	if n > lw.remaining {
		n = lw.remaining
	}
	written, err := lw.w.Write(p[:n])
	lw.remaining -= written
	if err != nil {
		return written, err
	}
	return len(p), nil
}
