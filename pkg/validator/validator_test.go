package validator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `validate:"required,max=5"`
	Email string `validate:"required,email"`
	Phone string `validate:"required,phone"`
	Date  string `validate:"omitempty,date"`
	Time  string `validate:"omitempty,clock"`
}

func valid() sample {
	return sample{Name: "Ada", Email: "ada@x.com", Phone: "1234567890", Date: "2026-11-02", Time: "18:30"}
}

func TestValidate_OK(t *testing.T) {
	assert.NoError(t, Validate(context.Background(), valid()))

	s := valid()
	s.Phone = "+1 (555) 010-9999"
	assert.NoError(t, Validate(context.Background(), s))
}

func TestValidate_Messages(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*sample)
		want   string
	}{
		{"missing name", func(s *sample) { s.Name = "" }, ErrFieldRequired + ": Name"},
		{"long name", func(s *sample) { s.Name = "Adaline" }, ErrFieldExceedsMaxLen + ": Name"},
		{"bad email", func(s *sample) { s.Email = "ada" }, ErrInvalidEmail + ": Email"},
		{"bad phone", func(s *sample) { s.Phone = "call me" }, ErrInvalidPhone + ": Phone"},
		{"bad date", func(s *sample) { s.Date = "02/11/2026" }, ErrInvalidDate + ": Date"},
		{"bad time", func(s *sample) { s.Time = "25:99" }, ErrInvalidClock + ": Time"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := valid()
			tc.mutate(&s)
			err := Validate(context.Background(), s)
			require.Error(t, err)
			assert.Equal(t, tc.want, err.Error())
		})
	}
}
