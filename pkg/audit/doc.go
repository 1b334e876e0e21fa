// Package audit records authorization decisions for compliance and forensics.
//
// Every decision becomes a Record (decision, user, action, object reference, policy,
// timestamp and an internal reason code). Sinks receive records:
//
//	sink := audit.NewMultiSink(
//		audit.NewLogrusSink(logger),
//		fileSink,
//	)
//
// The evaluator dispatches records in the background. A slow, failing or panicking
// sink never blocks or changes a decision.
package audit
