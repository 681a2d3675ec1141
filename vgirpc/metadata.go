package vgirpc

// Well-known metadata keys used in the vgi_rpc wire protocol.
// These appear as custom_metadata on Arrow IPC RecordBatch messages.
const (
	MetaMethod         = "vgi_rpc.method"
	MetaRequestVersion = "vgi_rpc.request_version"
	MetaRequestID      = "vgi_rpc.request_id"
	MetaLogLevel       = "vgi_rpc.log_level"
	MetaLogMessage     = "vgi_rpc.log_message"
	MetaLogExtra       = "vgi_rpc.log_extra"
	MetaServerID       = "vgi_rpc.server_id"
	MetaPackage        = "vgi_rpc.package"
	MetaFunction       = "vgi_rpc.function"
	MetaTimeoutMillis  = "vgi_rpc.timeout_ms"

	ProtocolVersion = "1"
)

// Method names carried in MetaMethod.
const (
	MethodExecute  = "execute"
	MethodDescribe = "__describe__"
)
