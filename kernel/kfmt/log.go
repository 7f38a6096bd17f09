// Package kfmt implements the kernel's console output: a module-tagged
// structured logger, raw formatted printing and the panic path.
package kfmt

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

var (
	// earlyPrintBuffer stores output produced before a console is attached.
	earlyPrintBuffer ringBuffer

	// outputSink is the io.Writer that receives all output. If set to nil,
	// output is redirected to the earlyPrintBuffer.
	outputSink io.Writer

	logger = newLogger()
)

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(&earlyPrintBuffer)
	l.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
		DisableColors:    true,
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetOutputSink sets the target for all kernel output to w and copies any
// data accumulated in the early print buffer to it. Passing nil reverts to
// the early print buffer.
func SetOutputSink(w io.Writer) {
	outputSink = w
	if w == nil {
		logger.SetOutput(&earlyPrintBuffer)
		return
	}

	_, _ = io.Copy(w, &earlyPrintBuffer)
	logger.SetOutput(w)
}

// OutputSink returns the writer currently receiving kernel output.
func OutputSink() io.Writer {
	if outputSink == nil {
		return &earlyPrintBuffer
	}

	return outputSink
}

// SetLevel adjusts the verbosity of the kernel logger.
func SetLevel(level logrus.Level) {
	logger.SetLevel(level)
}

// Logger returns a log entry tagged with the name of the kernel module
// emitting it.
func Logger(module string) *logrus.Entry {
	return logger.WithField("module", module)
}

// Printf writes formatted output to the active output sink. It is used for
// raw console output such as register dumps that should not carry log
// metadata.
func Printf(format string, args ...interface{}) {
	Fprintf(OutputSink(), format, args...)
}

// Fprintf behaves exactly like Printf but it writes the formatted output to
// the specified io.Writer.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	_, _ = fmt.Fprintf(w, format, args...)
}

// Hex formats an address as a hex string when used as a log field value.
type Hex uintptr

// String implements fmt.Stringer.
func (h Hex) String() string {
	return fmt.Sprintf("0x%x", uintptr(h))
}
