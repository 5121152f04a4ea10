package llm

import (
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
)

var (
	sharedBedrockMu      sync.Mutex
	sharedBedrockClients = make(map[string]*BedrockClient)
)

func bedrockPoolKey(cfg aws.Config) string {
	credPtr := ""
	if cfg.Credentials != nil {
		credPtr = fmt.Sprintf("%p", cfg.Credentials)
	}
	return fmt.Sprintf("%s|%s", cfg.Region, credPtr)
}

// GetSharedBedrockClient returns a process-wide cached Bedrock client for the given region.
// Reusing the client keeps HTTP/2 connections pooled across agent runs.
func GetSharedBedrockClient(cfg aws.Config) *BedrockClient {
	key := bedrockPoolKey(cfg)

	sharedBedrockMu.Lock()
	defer sharedBedrockMu.Unlock()

	if client, ok := sharedBedrockClients[key]; ok {
		return client
	}

	client := NewBedrockClient(cfg)
	sharedBedrockClients[key] = client
	return client
}
