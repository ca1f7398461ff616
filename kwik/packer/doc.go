/*
Package packer decodes the packed scripts served by kwik locker pages.

A packed script is a call literal of the form

	("<payload>", 17, "<alphabet>", <offset>, <base>, 24)

whose payload is a sequence of runs separated by alphabet[base]. Every run
encodes one character of an HTML fragment that carries the intermediate
link and the CSRF token used by the locker.

# Decoding

For each run:

 1. every symbol is replaced by the decimal index it has in the alphabet,
    in a single pass
 2. the resulting numeral is read in the source base, last character least
    significant, over the digit set 0-9a-zA-Z+/
 3. the value is rendered in the target base and its leading decimal
    digits are read back as a base 10 number
 4. the offset is subtracted and the result is the character code

Decoding is strict. Unknown symbols, digits outside the base, empty runs
and values that do not form a valid character fail with a structured
*Error whose Unwrap yields errs.ErrMalformedPayload.

# Engines

Native is the Go decoder above. Otto and Goja run an equivalent lenient
JavaScript routine and are meant as fallbacks when a page uses a variant the
strict decoder rejects:

	out, err := packer.DecodeWith(params, packer.Otto{})

EngineByName maps configuration values to engines.
*/
package packer
