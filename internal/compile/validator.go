package compile

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"unicode/utf8"
)

// Form field names used by the playground page.
const (
	FieldCode         = "kod"
	FieldBackend      = "backend"
	FieldOptimization = "optimize"
	FieldEmitIR       = "emit_ir"
)

// Validator turns a form-encoded request body into a Request.
type Validator struct {
	maxCodeBytes int64
}

func NewValidator(maxCodeBytes int64) *Validator {
	return &Validator{maxCodeBytes: maxCodeBytes}
}

// Parse validates a /run body. declared is the Content-Length announced by the
// client; it is checked before a single byte is read.
func (v *Validator) Parse(declared int64, body io.Reader) (Request, error) {
	form, err := v.readForm(declared, body)
	if err != nil {
		return Request{}, err
	}

	code, err := codeField(form)
	if err != nil {
		return Request{}, err
	}

	return Request{
		Code:         code,
		Backend:      ParseBackend(form.Get(FieldBackend)),
		Optimization: ParseOptimization(form.Get(FieldOptimization)),
		EmitIR:       form.Get(FieldEmitIR) == "true",
		Target:       TargetHost,
	}, nil
}

// ParseWasm validates a /compile-wasm body. Only the code field is read; WASM
// output always goes through the llvm backend.
func (v *Validator) ParseWasm(declared int64, body io.Reader) (Request, error) {
	form, err := v.readForm(declared, body)
	if err != nil {
		return Request{}, err
	}

	code, err := codeField(form)
	if err != nil {
		return Request{}, err
	}

	return Request{
		Code:    code,
		Backend: BackendLLVM,
		Target:  TargetWasm,
	}, nil
}

func (v *Validator) readForm(declared int64, body io.Reader) (url.Values, error) {
	if declared > v.maxCodeBytes {
		return nil, ErrCodeTooLarge
	}
	if declared <= 0 {
		return nil, ErrEmptyBody
	}

	buf := make([]byte, declared)
	if _, err := io.ReadFull(body, buf); err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrMalformed, err)
	}
	if !utf8.Valid(buf) {
		return nil, fmt.Errorf("%w: body is not UTF-8", ErrMalformed)
	}

	form, err := url.ParseQuery(string(buf))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return form, nil
}

func codeField(form url.Values) (string, error) {
	code := form.Get(FieldCode)
	if strings.TrimSpace(code) == "" {
		return "", ErrEmptyCode
	}
	return code, nil
}
