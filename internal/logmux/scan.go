package logmux

import (
	"bufio"
	"io"
)

const maxLineSize = 1 << 20

// Scan reads r line by line and sends each line to out until r reports EOF.
// It does not close out.
func Scan(r io.Reader, program, source string, out chan<- Line) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		out <- Line{Program: program, Source: source, Message: scanner.Text()}
	}
	return scanner.Err()
}
