/*
Package flaresync keeps a domain's A record pointed at the host's current
public IPv4 address.

Usage will always start with [New],
which returns a Client for a single domain.
New requires a registered DNS provider;
UsingCloudflare covers the common case and UsingProvider accepts anything
implementing [Provider].
One call to [Client.Run] performs one synchronization pass:
it resolves the host's public address and the domain's published address,
and rewrites the provider record only when the two differ.
Scheduling repeated runs is left to cron or a systemd timer.
*/
package flaresync
