// Package reputation derives a domain's 0-100 health score from its
// per-day delivery outcomes, and evaluates the alert rule list over the
// domain's current state. Scoring is incremental (a delta per completed
// observation day) so a long-running domain carries its history; alerts
// are a pure view and are recomputed on every read.
package reputation
