// Package oracle adapts external authenticity classifiers into bounded
// assessments.
//
// An Oracle turns raw image bytes into a score in [0, 100] plus a verdict
// obtained by thresholding that score. Implementations are stateless, never
// mutate their input and never retry: the registration pipeline owns retry
// policy because a stochastic classifier may score the same bytes differently
// on a second call.
//
// Client talks to a Hugging Face style image-classification endpoint. Fixed
// returns a constant score and backs offline deployments and tests.
package oracle
