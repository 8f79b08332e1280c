package accel

import (
	"fmt"

	"github.com/born-ml/convcore/internal/tensor"
)

// FormatError reports a tensor whose device format differs from the one a
// kernel was built for. It is raised as a panic: producer and consumer
// formats are fixed when the graph is built.
type FormatError struct {
	Op     string
	Tensor string
	Want   tensor.Format
	Got    tensor.Format
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: tensor %q has format %s, kernel expects %s", e.Op, e.Tensor, e.Got, e.Want)
}

func expectFormat(op string, t *tensor.Tensor, want tensor.Format) {
	if got := t.Format(); got != want {
		panic(&FormatError{Op: op, Tensor: t.Name(), Want: want, Got: got})
	}
}
