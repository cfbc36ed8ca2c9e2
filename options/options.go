package options

import (
	"errors"
	"sync"
	"time"
)

type (
	// Options is an option set.
	Options interface {
		SetOption(opt Option, val interface{}) error
		WithOption(opt Option, val interface{}) Options
		GetOption(opt Option) (val interface{}, ok bool)
		OptionValues() OptionValues
	}

	// Option is an option item with a default value.
	Option interface {
		Name() string
		DefaultValue() interface{}
		Validate(val interface{}) error
	}

	// OptionValues is a set of option value pairs, used to initialize Options.
	OptionValues map[Option]interface{}

	options struct {
		sync.RWMutex
		opts map[Option]interface{}
	}

	baseOption struct {
		name string
		def  interface{}
	}

	// BoolOption is an option with a bool value.
	BoolOption interface {
		Option
		ValueFrom(oss ...Options) bool
	}

	boolOption struct {
		baseOption
	}

	// IntOption is an option with an int value.
	IntOption interface {
		Option
		ValueFrom(oss ...Options) int
	}

	intOption struct {
		baseOption
	}

	// Uint16Option is an option with an uint16 value.
	Uint16Option interface {
		Option
		ValueFrom(oss ...Options) uint16
	}

	uint16Option struct {
		baseOption
	}

	// TimeDurationOption is an option with a time duration value.
	TimeDurationOption interface {
		Option
		ValueFrom(oss ...Options) time.Duration
	}

	timeDurationOption struct {
		baseOption
	}

	// AnyOption is an option with an arbitrary value, validated by the user.
	AnyOption interface {
		Option
		ValueFrom(oss ...Options) interface{}
	}

	anyOption struct {
		baseOption
	}
)

// ErrInvalidOptionValue is returned when setting an ill-typed option value.
var ErrInvalidOptionValue = errors.New("invalid option value")

// NewOptions create an option set.
func NewOptions() Options {
	return &options{opts: make(map[Option]interface{})}
}

// NewOptionsWithValues create an option set populated from ovs.
func NewOptionsWithValues(ovs OptionValues) Options {
	os := &options{opts: make(map[Option]interface{}, len(ovs))}
	for opt, val := range ovs {
		os.SetOption(opt, val)
	}
	return os
}

func (os *options) SetOption(opt Option, val interface{}) (err error) {
	if err = opt.Validate(val); err != nil {
		return
	}
	os.Lock()
	os.opts[opt] = val
	os.Unlock()
	return
}

func (os *options) WithOption(opt Option, val interface{}) Options {
	os.SetOption(opt, val)
	return os
}

func (os *options) GetOption(opt Option) (val interface{}, ok bool) {
	os.RLock()
	val, ok = os.opts[opt]
	os.RUnlock()
	return
}

func (os *options) OptionValues() OptionValues {
	os.RLock()
	ovs := make(OptionValues, len(os.opts))
	for opt, val := range os.opts {
		ovs[opt] = val
	}
	os.RUnlock()
	return ovs
}

// valueFrom finds opt's value in the given sets, first match wins,
// falling back to the option's default.
func valueFrom(opt Option, oss ...Options) interface{} {
	for _, os := range oss {
		if os == nil {
			continue
		}
		if val, ok := os.GetOption(opt); ok {
			return val
		}
	}
	return opt.DefaultValue()
}

// base option

func (o *baseOption) Name() string {
	return o.name
}

func (o *baseOption) DefaultValue() interface{} {
	return o.def
}

// bool option

// NewBoolOption create a bool option.
func NewBoolOption(name string, def bool) BoolOption {
	return &boolOption{baseOption{name: name, def: def}}
}

func (o *boolOption) Validate(val interface{}) error {
	if _, ok := val.(bool); !ok {
		return ErrInvalidOptionValue
	}
	return nil
}

func (o *boolOption) ValueFrom(oss ...Options) bool {
	return valueFrom(o, oss...).(bool)
}

// int option

// NewIntOption create an int option.
func NewIntOption(name string, def int) IntOption {
	return &intOption{baseOption{name: name, def: def}}
}

func (o *intOption) Validate(val interface{}) error {
	if _, ok := val.(int); !ok {
		return ErrInvalidOptionValue
	}
	return nil
}

func (o *intOption) ValueFrom(oss ...Options) int {
	return valueFrom(o, oss...).(int)
}

// uint16 option

// NewUint16Option create an uint16 option.
func NewUint16Option(name string, def uint16) Uint16Option {
	return &uint16Option{baseOption{name: name, def: def}}
}

func (o *uint16Option) Validate(val interface{}) error {
	if _, ok := val.(uint16); !ok {
		return ErrInvalidOptionValue
	}
	return nil
}

func (o *uint16Option) ValueFrom(oss ...Options) uint16 {
	return valueFrom(o, oss...).(uint16)
}

// time duration option

// NewTimeDurationOption create a time duration option.
func NewTimeDurationOption(name string, def time.Duration) TimeDurationOption {
	return &timeDurationOption{baseOption{name: name, def: def}}
}

func (o *timeDurationOption) Validate(val interface{}) error {
	if _, ok := val.(time.Duration); !ok {
		return ErrInvalidOptionValue
	}
	return nil
}

func (o *timeDurationOption) ValueFrom(oss ...Options) time.Duration {
	return valueFrom(o, oss...).(time.Duration)
}

// any option

// NewAnyOption create an option holding an arbitrary value.
func NewAnyOption(name string, def interface{}) AnyOption {
	return &anyOption{baseOption{name: name, def: def}}
}

func (o *anyOption) Validate(val interface{}) error {
	return nil
}

func (o *anyOption) ValueFrom(oss ...Options) interface{} {
	return valueFrom(o, oss...)
}
