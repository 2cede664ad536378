package common

const (
	// ToolName is recorded in every manifest.
	ToolName = "sealback"

	// ArchiveSuffix is the file extension of sealed archives.
	ArchiveSuffix = ".seal"

	// ManifestName is the tar entry that carries the archive manifest.
	ManifestName = "manifest.json"

	// PasswordEnvVar lets scripts supply the password without a prompt.
	PasswordEnvVar = "SEALBACK_PASSWORD"
)
