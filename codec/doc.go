// Package codec converts exported artifacts into transport-ready encodings:
// base64 text for JSON bodies, or named file parts for multipart/form-data.
package codec
