// Package relocate moves a resolved recording from the watch directory into
// the output directory.
//
// A relocation renames the file in place to its meeting title and original
// timestamp token, copies it into the output directory with size and SHA256
// verification, and only then removes the renamed source. The fallback path
// used when calendar resolution failed copies the file under its original
// name with the same guarantee. A file is never deleted unless a verified
// copy exists downstream.
package relocate
