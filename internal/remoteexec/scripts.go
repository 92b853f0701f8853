package remoteexec

import (
	"fmt"
	"strings"

	"deployctl/internal/model"
)

// ScriptSet builds the five opaque scripts §6 defines for a RemoteExecutor
// target: prep (pull the image), start_side (start the new container on a
// side port), promote (cut traffic over), upstream_apply (reverse-proxy
// weight update for canary stages), and rollback (restore the previous
// image). Built with strings.Builder the way the teacher's
// internal/docker/data_downloader.go buildDownloadScript constructs
// in-container shell scripts, generalized from a fixed freqtrade pipeline to
// parameterized deploy/rollback steps.
type ScriptSet struct {
	ContainerName string
	Port          int
	HealthPath    string
}

func (s ScriptSet) Prep(imageTag string) string {
	var b strings.Builder
	b.WriteString("set -e\n")
	fmt.Fprintf(&b, "docker pull %s\n", shellQuote(imageTag))
	return b.String()
}

func (s ScriptSet) StartSide(imageTag string, sidePort int, envVars []model.EnvVar) string {
	var b strings.Builder
	b.WriteString("set -e\n")
	fmt.Fprintf(&b, "docker rm -f %s-side 2>/dev/null || true\n", shellQuote(s.ContainerName))
	b.WriteString("docker run -d \\\n")
	fmt.Fprintf(&b, "  --name %s-side \\\n", shellQuote(s.ContainerName))
	fmt.Fprintf(&b, "  -p %d:%d \\\n", sidePort, s.Port)
	for _, v := range envVars {
		fmt.Fprintf(&b, "  -e %s=%s \\\n", v.Key, shellQuote(v.Value))
	}
	fmt.Fprintf(&b, "  %s\n", shellQuote(imageTag))
	return b.String()
}

func (s ScriptSet) Promote() string {
	var b strings.Builder
	b.WriteString("set -e\n")
	fmt.Fprintf(&b, "docker rm -f %s 2>/dev/null || true\n", shellQuote(s.ContainerName))
	fmt.Fprintf(&b, "docker rename %s-side %s\n", shellQuote(s.ContainerName), shellQuote(s.ContainerName))
	return b.String()
}

// UpstreamApply rewrites the reverse-proxy's weighted upstream for a canary
// stage (§4.7.2): both the stable and side containers stay up, and nginx
// (or an equivalent) splits traffic by the given percentages.
func (s ScriptSet) UpstreamApply(stableWeight, sideWeight int) string {
	var b strings.Builder
	b.WriteString("set -e\n")
	b.WriteString("cat <<'NGINX_CONF' > /etc/nginx/conf.d/upstream.conf\n")
	b.WriteString("upstream backend {\n")
	fmt.Fprintf(&b, "    server 127.0.0.1:%d weight=%d;\n", s.Port, stableWeight)
	fmt.Fprintf(&b, "    server 127.0.0.1:%d weight=%d;\n", s.Port+1, sideWeight)
	b.WriteString("}\n")
	b.WriteString("NGINX_CONF\n")
	b.WriteString("nginx -s reload\n")
	return b.String()
}

func (s ScriptSet) Rollback(previousImageTag string) string {
	var b strings.Builder
	b.WriteString("set -e\n")
	fmt.Fprintf(&b, "docker rm -f %s-side 2>/dev/null || true\n", shellQuote(s.ContainerName))
	fmt.Fprintf(&b, "docker rm -f %s 2>/dev/null || true\n", shellQuote(s.ContainerName))
	b.WriteString("docker run -d \\\n")
	fmt.Fprintf(&b, "  --name %s \\\n", shellQuote(s.ContainerName))
	fmt.Fprintf(&b, "  -p %d:%d \\\n", s.Port, s.Port)
	fmt.Fprintf(&b, "  %s\n", shellQuote(previousImageTag))
	return b.String()
}

// shellQuote wraps a value in single quotes, escaping any embedded single
// quote, so interpolated image tags or env values can never break out of
// their argument position.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
