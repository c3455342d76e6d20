// Package extract pulls hyperlinks and labeled fields out of Beachwatch HTML
// pages with goquery. Nothing here performs I/O; every function is a pure
// transformation of its inputs.
package extract
