package config

// DefaultConfigYAML contains the default configuration YAML content.
// It is written by `bsqa init`.
const DefaultConfigYAML = `# bsqa configuration
#
# Values not specified here use built-in defaults. Every key can be
# overridden with a BSQA_ environment variable, e.g. BSQA_API_BASE_URL.

log:
  level: info      # debug, info, warn, error
  format: auto     # auto, text, json

# QA backend serving /config, /api-config and /jira/test-connection
api:
  base_url: http://localhost:8000
  timeout: 15s

storage:
  # Settings document: file (JSON) or sqlite
  persistent:
    backend: file
    # path: ~/.config/bsqa/settings.json
  # Jira session credentials: file, memory or redis
  session:
    backend: file
    ttl: 12h
  # redis_url: redis://localhost:6379/0
  poll_interval: 2s

# bsqa serve
server:
  host: localhost
  port: 8090
  cors: true
  request_timeout: 60s

# Fallback analysis types used when the backend catalog is unreachable
# catalog:
#   analysis_types:
#     - key: card_QA_writer
#       label: QA card writer
`
