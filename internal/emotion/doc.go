// Package emotion provides a small rule-based classifier that tags a chat
// message with a coarse emotional tone. The tag is used as a scoring feature
// when resolving cached meanings.
package emotion
