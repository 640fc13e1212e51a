// Command archivist is the CLI for the archivist library daemon. It uploads
// documents, inspects items and their processing history, manages the review
// queue, and controls the daemon process.
package main
