package config

import "fmt"

type fakeEnvRepo struct {
	envVars map[string]string
}

func newFakeEnvRepo(envVars map[string]string) fakeEnvRepo {
	if envVars == nil {
		envVars = map[string]string{}
	}
	return fakeEnvRepo{envVars: envVars}
}

func (repo fakeEnvRepo) Get(key string) string {
	return repo.envVars[key]
}

func (repo fakeEnvRepo) Set(key, value string) error {
	repo.envVars[key] = value
	return nil
}

func (repo fakeEnvRepo) Unset(key string) error {
	delete(repo.envVars, key)
	return nil
}

func (repo fakeEnvRepo) List() []string {
	envs := []string{}
	for k, v := range repo.envVars {
		envs = append(envs, fmt.Sprintf("%s=%s", k, v))
	}
	return envs
}
