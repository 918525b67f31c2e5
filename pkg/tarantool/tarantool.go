package tarantool

import (
	"fmt"
	"time"

	"github.com/tarantool/go-tarantool"
)

type Config struct {
	Host     string        `yaml:"TARANTOOL_HOST" env:"TARANTOOL_HOST" env-default:"localhost"`
	Port     string        `yaml:"TARANTOOL_PORT" env:"TARANTOOL_PORT" env-default:"3301"`
	Username string        `yaml:"TARANTOOL_USER" env:"TARANTOOL_USER" env-default:"admin"`
	Password string        `yaml:"TARANTOOL_PASSWORD" env:"TARANTOOL_PASSWORD" env-default:"secret"`
	Timeout  time.Duration `yaml:"TARANTOOL_TIMEOUT" env:"TARANTOOL_TIMEOUT" env-default:"5s"`
}

func New(config Config) (*tarantool.Connection, error) {
	conn, err := tarantool.Connect(config.Host+":"+config.Port, tarantool.Opts{
		User:    config.Username,
		Pass:    config.Password,
		Timeout: config.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("tarantool: connect to %s:%s: %w", config.Host, config.Port, err)
	}
	return conn, nil
}

// Bootstrap creates the spaces and indexes used by the repositories.
// Every statement is idempotent so it runs on each start.
func Bootstrap(conn *tarantool.Connection) error {
	if _, err := conn.Eval(schema, []interface{}{}); err != nil {
		return fmt.Errorf("tarantool: bootstrap schema: %w", err)
	}
	return nil
}

const schema = `
local polls = box.schema.space.create('polls', {if_not_exists = true})
polls:format({
    {name = 'id', type = 'string'},
    {name = 'version', type = 'unsigned'},
    {name = 'status', type = 'string'},
    {name = 'deleted', type = 'boolean'},
    {name = 'doc', type = 'string'},
})
polls:create_index('primary', {parts = {'id'}, if_not_exists = true})
polls:create_index('status', {parts = {'status'}, unique = false, if_not_exists = true})

local surveys = box.schema.space.create('surveys', {if_not_exists = true})
surveys:format({
    {name = 'id', type = 'string'},
    {name = 'version', type = 'unsigned'},
    {name = 'status', type = 'string'},
    {name = 'deleted', type = 'boolean'},
    {name = 'doc', type = 'string'},
})
surveys:create_index('primary', {parts = {'id'}, if_not_exists = true})
surveys:create_index('status', {parts = {'status'}, unique = false, if_not_exists = true})

local responses = box.schema.space.create('responses', {if_not_exists = true})
responses:format({
    {name = 'id', type = 'string'},
    {name = 'survey_id', type = 'string'},
    {name = 'dedupe_key', type = 'string'},
    {name = 'code', type = 'string'},
    {name = 'doc', type = 'string'},
})
responses:create_index('primary', {parts = {'id'}, if_not_exists = true})
responses:create_index('respondent', {parts = {'survey_id', 'dedupe_key'}, unique = true, if_not_exists = true})
responses:create_index('survey', {parts = {'survey_id'}, unique = false, if_not_exists = true})
responses:create_index('code', {parts = {'survey_id', 'code'}, unique = true, if_not_exists = true})
`
