// Package revision turns interviewee corrections into a revision request for
// the generation step. Merge is pure: the same brief and correction set
// always produce the same request, whatever order the corrections arrived in.
package revision
