package packer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"github.com/robertkrimen/otto"

	"github.com/ytget/pahedl/errs"
	"github.com/ytget/pahedl/types"
)

// Engine names accepted by EngineByName.
const (
	EngineNative = "native"
	EngineOtto   = "otto"
	EngineGoja   = "goja"
	EngineNone   = "none"
)

const unpackFuncName = "unpack"

// unpackJS is the lenient script form of Decode: unknown symbols and
// out-of-range digits are skipped and empty runs are ignored.
const unpackJS = `
function unpack(payload, alphabet, offset, base, target) {
  var digits = "` + digitSet + `";
  var delim = alphabet.charAt(base);
  var runs = payload.split(delim);
  var out = "";
  for (var i = 0; i < runs.length; i++) {
    var run = runs[i];
    if (run === "") continue;
    var numeral = "";
    for (var j = 0; j < run.length; j++) {
      var k = alphabet.indexOf(run.charAt(j));
      if (k >= 0) numeral += k;
    }
    var value = 0;
    for (var p = 0; p < numeral.length; p++) {
      var d = digits.indexOf(numeral.charAt(p));
      if (d >= 0 && d < base) value = value * base + d;
    }
    var rendered = value === 0 ? "0" : "";
    while (value > 0) {
      rendered = digits.charAt(value % target) + rendered;
      value = Math.floor(value / target);
    }
    out += String.fromCharCode(parseInt(rendered, 10) - offset);
  }
  return out;
}
`

// Engine decodes packed parameters.
type Engine interface {
	Name() string
	Decode(p types.DecodeParameters) (string, error)
}

// Native is the strict Go decoder.
type Native struct{}

// Name implements Engine.
func (Native) Name() string { return EngineNative }

// Decode implements Engine.
func (Native) Decode(p types.DecodeParameters) (string, error) { return DecodeParams(p) }

// Otto runs the unpacking routine on the otto interpreter.
type Otto struct{}

// Name implements Engine.
func (Otto) Name() string { return EngineOtto }

// Decode implements Engine. Every call uses a fresh VM.
func (Otto) Decode(p types.DecodeParameters) (string, error) {
	if err := checkScriptParams(p); err != nil {
		return "", err
	}
	vm := otto.New()
	if _, err := vm.Run(unpackJS); err != nil {
		return "", jsError("failed to load unpack routine in otto", err)
	}
	value, err := vm.Call(unpackFuncName, nil, p.EncodedPayload, p.SourceAlphabet, p.NumericOffset, p.SourceBase, targetOf(p))
	if err != nil {
		return "", jsError("failed to call unpack in otto", err)
	}
	out, err := value.ToString()
	if err != nil {
		return "", jsError("unpack did not return a string", err)
	}
	return out, nil
}

// Goja runs the unpacking routine on the goja runtime.
type Goja struct{}

// Name implements Engine.
func (Goja) Name() string { return EngineGoja }

// Decode implements Engine. Every call uses a fresh runtime.
func (Goja) Decode(p types.DecodeParameters) (string, error) {
	if err := checkScriptParams(p); err != nil {
		return "", err
	}
	vm := goja.New()
	if _, err := vm.RunString(unpackJS); err != nil {
		return "", jsError("failed to load unpack routine in goja", err)
	}
	fn, ok := goja.AssertFunction(vm.Get(unpackFuncName))
	if !ok {
		return "", jsError("unpack function not found", nil)
	}
	res, err := fn(goja.Undefined(),
		vm.ToValue(p.EncodedPayload),
		vm.ToValue(p.SourceAlphabet),
		vm.ToValue(p.NumericOffset),
		vm.ToValue(p.SourceBase),
		vm.ToValue(targetOf(p)),
	)
	if err != nil {
		return "", jsError("failed to call unpack in goja", err)
	}
	if goja.IsUndefined(res) || goja.IsNull(res) {
		return "", jsError("unpack returned undefined/null", nil)
	}
	return res.String(), nil
}

// EngineByName returns the engine for name. "none" and "" return a nil
// engine, meaning no fallback.
func EngineByName(name string) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", EngineNone:
		return nil, nil
	case EngineNative:
		return Native{}, nil
	case EngineOtto:
		return Otto{}, nil
	case EngineGoja:
		return Goja{}, nil
	default:
		return nil, fmt.Errorf("unknown decoder engine %q", name)
	}
}

// DecodeWith decodes with the native decoder and retries with fallback when
// the payload is rejected as malformed. A nil fallback disables the retry.
func DecodeWith(p types.DecodeParameters, fallback Engine) (string, error) {
	out, err := DecodeParams(p)
	if err == nil || fallback == nil || !errors.Is(err, errs.ErrMalformedPayload) {
		return out, err
	}
	if _, native := fallback.(Native); native {
		return out, err
	}
	if alt, altErr := fallback.Decode(p); altErr == nil {
		return alt, nil
	}
	return "", err
}

// checkScriptParams keeps the script engines away from inputs they cannot index.
func checkScriptParams(p types.DecodeParameters) error {
	if p.SourceBase < minBase || p.SourceBase > maxBase || len(p.SourceAlphabet) <= p.SourceBase {
		return NewError(ErrCodeAlphabetMismatch, "alphabet has no delimiter for base", map[string]any{"base": p.SourceBase})
	}
	if t := targetOf(p); t < minBase || t > maxBase {
		return NewError(ErrCodeAlphabetMismatch, "target base out of range", map[string]any{"target_base": t})
	}
	return nil
}

func targetOf(p types.DecodeParameters) int {
	if p.TargetBase == 0 {
		return DefaultTargetBase
	}
	return p.TargetBase
}

func jsError(msg string, cause error) *Error {
	if cause == nil {
		return NewError(ErrCodeJSExecutionFailed, msg)
	}
	return NewError(ErrCodeJSExecutionFailed, msg, cause.Error())
}
