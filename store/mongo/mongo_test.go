package mongo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
)

func TestNewStoreRequiresClient(t *testing.T) {
	_, err := NewStore(context.Background(), Options{Database: "agentrt"})
	assert.Error(t, err)
}

func TestNewStoreRequiresDatabaseName(t *testing.T) {
	_, err := NewStore(context.Background(), Options{Client: &mongodriver.Client{}})
	assert.Error(t, err)
}
