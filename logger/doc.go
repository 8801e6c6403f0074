// Package logger provides zerolog-backed structured logging.
//
// Loggers write JSON or a compact console format. Under js/wasm stdout is
// the browser console.
//
// # Configuration
//
//	logging:
//	  level: "debug"
//	  format: "json"
//
// # Usage
//
//	log := logger.WithComponent("fetch")
//	log.Debug("fetch dispatch", logger.Fields("method", "GET", "url", u))
package logger
