package pipeline

import (
	"errors"
	"fmt"

	"predkit/pkg/frame"
)

var ErrSchema = errors.New("schema violation")

// Field is one required column.
type Field struct {
	Name string
	Kind frame.Kind
}

// Schema describes the columns a dataset must carry.
type Schema struct {
	Fields []Field
}

// Validate reports the first required column that is absent or has the
// wrong kind. A column whose cells are all missing passes either kind.
func (s Schema) Validate(f *frame.Frame) error {
	for _, fd := range s.Fields {
		c, err := f.Column(fd.Name)
		if err != nil {
			return fmt.Errorf("%w: missing column %s", ErrSchema, fd.Name)
		}
		if c.Kind == fd.Kind {
			continue
		}
		empty := true
		for i := 0; i < c.Len(); i++ {
			if !c.IsMissing(i) {
				empty = false
				break
			}
		}
		if !empty {
			return fmt.Errorf("%w: column %s is %s, want %s", ErrSchema, fd.Name, c.Kind, fd.Kind)
		}
	}
	return nil
}
