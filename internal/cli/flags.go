package cli

// Flags holds all command-line flag values
type Flags struct {
	// General flags
	CfgFile  string
	DataDir  string
	Backend  string
	Provider string
	Verbose  bool

	// Message flags
	Lang        string
	ChannelID   string
	Author      string
	ReplyAuthor string
	BatchFile   string
	JSONOutput  bool
}

// NewFlags creates a new Flags instance with default values
func NewFlags() *Flags {
	return &Flags{
		DataDir:   "data",
		Backend:   "json",
		Provider:  "gemini",
		ChannelID: "cli",
		Author:    "cli",
	}
}
