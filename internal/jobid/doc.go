// Package jobid derives the content-addressed cache directory for a
// conversion request. The identity is a pure function of the sorted input
// paths, the output path, and the encode parameters, which is what makes
// resume-after-interrupt possible: rerunning the same request lands in the
// same directory and finds its earlier fragments.
package jobid
