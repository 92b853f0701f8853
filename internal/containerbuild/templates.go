package containerbuild

// Dockerfile templates keyed by detected language, substituted with the
// detected entrypoint command at generation time. Minimal and unoptimized on
// purpose: these exist to get an undockerized repository building, not to
// replace a maintainer-authored Dockerfile.
const (
	dockerfileNode = `FROM node:20-slim
WORKDIR /app
COPY package*.json ./
RUN npm ci --omit=dev
COPY . .
CMD {{ENTRYPOINT}}
`

	dockerfileGo = `FROM golang:1.22 AS build
WORKDIR /src
COPY . .
RUN go build -o /out/app ./...

FROM gcr.io/distroless/base-debian12
COPY --from=build /out/app /app
ENTRYPOINT ["/app"]
`

	dockerfilePython = `FROM python:3.12-slim
WORKDIR /app
COPY requirements.txt .
RUN pip install --no-cache-dir -r requirements.txt
COPY . .
CMD {{ENTRYPOINT}}
`

	dockerfileRuby = `FROM ruby:3.3-slim
WORKDIR /app
COPY Gemfile* ./
RUN bundle install
COPY . .
CMD {{ENTRYPOINT}}
`
)
