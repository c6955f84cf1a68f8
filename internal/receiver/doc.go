// Package receiver implements the upload server events are handed off to.
//
// POST /upload accepts multipart "files" parts (videos and location logs),
// stores each as <base>_<YYYY-MM-DD>_<HH-MM-SS><ext> in the uploads
// directory, and answers with the stored paths. GET /files lists the
// directory and GET /files/{name} serves a stored file.
package receiver
