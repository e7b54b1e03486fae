package sharedmmap

import (
	"errors"
	"testing"
)

func TestOptionsWithDefaults(t *testing.T) {
	o := Options{SharePath: "x"}.withDefaults()
	if o.NumPages != defaultNumPages {
		t.Errorf("NumPages = %d, want %d", o.NumPages, defaultNumPages)
	}
	if o.PageSize != defaultPageSize {
		t.Errorf("PageSize = %d, want %d", o.PageSize, defaultPageSize)
	}
	if o.StartSlots != defaultStartSlots {
		t.Errorf("StartSlots = %d, want %d", o.StartSlots, defaultStartSlots)
	}
	if o.Permissions != defaultPermissions {
		t.Errorf("Permissions = %#o, want %#o", o.Permissions, defaultPermissions)
	}
}

func TestOptionsValidateRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		o    Options
	}{
		{"empty path", Options{NumPages: 1, PageSize: minPageSize, StartSlots: 1}},
		{"zero pages", Options{SharePath: "x", NumPages: 0, PageSize: minPageSize, StartSlots: 1}},
		{"tiny page size", Options{SharePath: "x", NumPages: 1, PageSize: 16, StartSlots: 1}},
		{"huge page size", Options{SharePath: "x", NumPages: 1, PageSize: maxPageSize * 2, StartSlots: 1}},
		{"unaligned page size", Options{SharePath: "x", NumPages: 1, PageSize: minPageSize + 1, StartSlots: 1}},
		{"zero start slots", Options{SharePath: "x", NumPages: 1, PageSize: minPageSize, StartSlots: 0}},
		{"start slots too big", Options{SharePath: "x", NumPages: 1, PageSize: minPageSize, StartSlots: minPageSize}},
		{"default expire collides with sentinel", Options{SharePath: "x", NumPages: 1, PageSize: minPageSize, StartSlots: 1, DefaultExpireSeconds: ExpireUseDefault}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if err := c.o.validate(); !errors.Is(err, ErrConfig) {
				t.Errorf("validate() err = %v, want ErrConfig", err)
			}
		})
	}
}

func TestOptionsValidateAcceptsDefaults(t *testing.T) {
	o := Options{SharePath: "x"}.withDefaults()
	if err := o.validate(); err != nil {
		t.Fatalf("validate() = %v, want nil", err)
	}
}

func TestOpenRejectsInvalidOptions(t *testing.T) {
	if _, err := Open(Options{}); !errors.Is(err, ErrConfig) {
		t.Fatalf("Open(empty Options): err = %v, want ErrConfig", err)
	}
}
