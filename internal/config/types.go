package config

// ManifestFile is the project manifest's file name, at the project root.
const ManifestFile = "dappled.yml"

// Manifest keys.
const (
	KeyNotebookID  = "notebook_id"
	KeyName        = "name"
	KeyFilename    = "filename"
	KeyDescription = "description"
	KeyPackages    = "packages"
	KeyChannels    = "channels"
	KeyDockerImage = "docker_image"
	KeyPublishID   = "publish_id"
	KeyGitHub      = "github"
	KeyDownloads   = "downloads"
)

// GitHubRef pins a GitHub repository snapshot whose files are unpacked next to the notebook.
type GitHubRef struct {
	Owner string `yaml:"owner"`
	Repo  string `yaml:"repo"`
	SHA   string `yaml:"sha"`
}

// ArchiveURL is the zip snapshot of the pinned commit.
func (g GitHubRef) ArchiveURL() string {
	return "https://github.com/" + g.Owner + "/" + g.Repo + "/archive/" + g.SHA + ".zip"
}
