// Package component defines the lifecycle interface shared by the fetch
// transport and the development server, and a registry that starts them
// in order and stops them in reverse.
package component
