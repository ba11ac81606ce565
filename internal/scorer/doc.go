// Package scorer ranks cached meanings against an incoming message and picks
// one by weighted random sampling.
//
// Every entry having the message's source language is a candidate. Its score
// adds up the entry confidence and bonuses for textual similarity, channel
// usage, emotional fit, presence in the recent window, reply adjacency and
// learned distance to the most recent meaning. The selector then draws one
// candidate with probability proportional to its score, so a strong match
// usually wins while weaker ones keep a small chance to be picked.
package scorer
