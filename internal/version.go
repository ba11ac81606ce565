package internal

// Version is the meaningbot release
const Version = "0.3.0"
