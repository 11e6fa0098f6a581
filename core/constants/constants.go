package constants

// Version is the dapp service version.
const Version = "v1.2.0"
