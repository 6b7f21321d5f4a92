// Package triage provides the business boundary for the clinical intake
// pipeline. It defines the Record and Vitals domain models, the pure flag
// evaluator, the Store interface (persistence), and the intake Service.
package triage
