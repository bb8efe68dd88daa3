package cmd

// appHelpTemplate lists commands in one aligned column under the
// description.
const appHelpTemplate = `{{.Name}}{{if .Version}} {{.Version}}{{end}}
{{.Description}}

Usage:
	{{if .UsageText}}{{.UsageText}}{{else}}{{.HelpName}} <command> [options] [arguments]{{end}}
{{if .VisibleCommands}}
Commands:{{range .VisibleCommands}}
	{{index .Names 0}}{{"\t"}}{{.Usage}}{{end}}
{{end}}
Run "{{.HelpName}} help <command>" for the options of a command.

`

const commandHelpTemplate = `{{.HelpName}}: {{.Usage}}
{{if .Description}}
{{.Description}}
{{end}}
Usage:
	{{.HelpName}}{{if .UsageText}} {{.UsageText}}{{else}} [options]{{end}}
{{if .VisibleFlags}}
Options:{{range .VisibleFlags}}
	{{.}}{{end}}
{{end}}
`
