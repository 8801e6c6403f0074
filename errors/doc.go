// Package errors provides AppError, a coded error with an HTTP status and a
// JSON body form shared by the fixture server and the client.
package errors
