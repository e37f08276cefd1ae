// Package partition splits a labeled corpus into train and validation
// corpora keyed by a seed.
//
// Membership is a pure function of (seed, sorted label listing, ratio):
// the listing is sorted, shuffled with a PCG generator built for the call
// and an explicitly coded Fisher-Yates pass, then cut at
// floor(len*ratio). The first cut goes to validation.
package partition
