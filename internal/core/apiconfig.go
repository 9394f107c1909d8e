package core

import "strings"

// Env-style keys of the backend's credential store.
const (
	EnvOpenAIAPIKey          = "OPENAI_API_KEY"
	EnvStackSpotClientID     = "Client_ID_stackspot"
	EnvStackSpotClientSecret = "Client_Key_stackspot"
	EnvStackSpotRealm        = "Realm_stackspot"
	EnvStackSpotAgentID      = "STACKSPOT_AGENT_ID"
)

// APIConfigFromDocument returns the credential map for enabled AI blocks.
func APIConfigFromDocument(doc ConfigDocument) map[string]string {
	out := make(map[string]string)
	if doc.IA.OpenAI.Enabled && doc.IA.OpenAI.APIKey != "" {
		out[EnvOpenAIAPIKey] = doc.IA.OpenAI.APIKey
	}
	if doc.IA.StackSpot.Enabled {
		ss := doc.IA.StackSpot
		for k, v := range map[string]string{
			EnvStackSpotClientID:     ss.ClientID,
			EnvStackSpotClientSecret: ss.ClientSecret,
			EnvStackSpotRealm:        ss.Realm,
			EnvStackSpotAgentID:      ss.AgentID,
		} {
			if v != "" {
				out[k] = v
			}
		}
	}
	return out
}

// ApplyAPIConfig folds a backend credential map into doc. OpenAI is enabled
// when its key is present, StackSpot when all four of its values are.
func ApplyAPIConfig(doc ConfigDocument, env map[string]string) ConfigDocument {
	get := func(k string) string { return strings.TrimSpace(env[k]) }

	if key := get(EnvOpenAIAPIKey); key != "" {
		doc.IA.OpenAI.Enabled = true
		doc.IA.OpenAI.APIKey = key
	}

	id, secret := get(EnvStackSpotClientID), get(EnvStackSpotClientSecret)
	realm, agent := get(EnvStackSpotRealm), get(EnvStackSpotAgentID)
	if id != "" && secret != "" && realm != "" && agent != "" {
		doc.IA.StackSpot.Enabled = true
		doc.IA.StackSpot.ClientID = id
		doc.IA.StackSpot.ClientSecret = secret
		doc.IA.StackSpot.Realm = realm
		doc.IA.StackSpot.AgentID = agent
	}
	return doc
}
