// Package file provides filesystem adapters: a session state store writing one JSON file
// per session, and a data API reading versions and programs from a project directory.
package file
