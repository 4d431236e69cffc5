package instance

import "github.com/angelmondragon/mesa-backend/pkg/env"

// GetID names the running process in logs. Heroku dynos set DYNO; containers
// usually set HOSTNAME.
func GetID() string {
	return env.First("local", "MESA_INSTANCE_ID", "DYNO", "HOSTNAME")
}
