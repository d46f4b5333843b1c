package playground

// Texts shown to the playground page. They are part of the public contract.
const (
	MsgCodeTooLarge = "Kod boyutu cok buyuk (max 8KB)"
	MsgEmptyBody    = "Bos istek"
	MsgMalformed    = "Gecersiz istek"
	MsgEmptyCode    = "Bos kod"

	MsgCompileError     = "Derleme hatasi"
	MsgWasmCompileError = "WASM derleme hatasi"
	MsgIRMissing        = "IR dosyasi olusturulamadi"
	MsgCompileTimeout   = "Derleme zaman asimi"

	MsgWasmMissing  = "WASM dosyasi olusturulamadi"
	MsgWasmTooLarge = "WASM dosyasi cok buyuk (max 512KB)"
	MsgWasmInvalid  = "WASM dosyasi gecersiz"

	MsgInternal = "Sunucu hatasi"
)

// Result labels shared by metrics and the audit log.
const (
	ResultOK           = "ok"
	ResultRejected     = "rejected"
	ResultCompileError = "compile_error"
	ResultTimeout      = "timeout"
	ResultTooLarge     = "too_large"
	ResultError        = "error"
)

// Endpoint labels.
const (
	EndpointRun  = "run"
	EndpointWasm = "compile-wasm"
)
