package sqlinline

// QSelectIntegrationToken returns the stored key for one provider. Blank
// tokens count as absent so the caller reports the provider unconfigured.
const QSelectIntegrationToken = `--sql efb7f0c9-f2df-4038-acdd-91ab3d5e1a01
select token
from integration_tokens
where provider = $1::text
  and btrim(token) <> '';
`

const QUpsertIntegrationToken = `--sql e9a8a919-61ab-475a-9c70-890f1655f640
insert into integration_tokens (provider, token, properties)
values ($1::text, $2::text, coalesce($3::jsonb, '{}'::jsonb))
on conflict (provider) do update set
    token = excluded.token,
    properties = integration_tokens.properties || excluded.properties,
    updated_at = now();
`
