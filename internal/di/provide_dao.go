package di

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/cloudigrade/deployer/internal/config"
	"github.com/cloudigrade/deployer/internal/dao/lockdao"
	"github.com/cloudigrade/deployer/internal/dao/rundao"
)

func ProvideRunDAO(cfg *config.Config, client *dynamodb.Client) *rundao.DAO {
	return rundao.New(client, cfg.RunTableName)
}

// ProvideLockDAO shares the runs table; locks use a fixed sort key.
func ProvideLockDAO(cfg *config.Config, client *dynamodb.Client) *lockdao.DAO {
	return lockdao.New(client, cfg.RunTableName)
}
