// Package entry owns the learned dictionary of meanings. A meaning (Entry)
// groups the phrasings of one concept across languages together with a
// confidence score and the emotional contexts it was confirmed in. Store is
// the only component that mutates entries.
package entry
