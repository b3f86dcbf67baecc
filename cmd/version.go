package cmd

const Version = "0.1.0"
